// Package deps resolves the external binaries assetsync shells out to and
// reports their availability for status output and preflight.
package deps
