// Package runstore keeps a SQLite ledger of runs, the per-target state
// transitions within each run, and the files each bundle placed. The ledger
// backs the status command and lets later runs skip bundles that are already
// fully placed.
package runstore
