// Package stores keeps the build history in SQLite. The schema is applied from
// embedded golang-migrate migrations; each build row carries its dependency
// list and any policy messages it produced.
package stores
