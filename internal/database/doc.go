// Package database provides connection pool management for TimescaleDB.
//
// Each gatherer writes trades, order book snapshots, tickers and candles
// into hypertables on a single TimescaleDB instance.
package database
