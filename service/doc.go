// Package service coordinates the matching engine with its journals
// and event streams. It is the only writer: every command passes
// through OrderService under one mutex, is journaled to the entry WAL
// first, and has its resulting events journaled to the exit WAL before
// anything downstream sees them.
package service
