// Package model defines shared data types used across bitforex-stream.
//
// Conventions:
//   - Prices and amounts: decimal.Decimal (Bitforex quotes sub-satoshi values)
//   - Timestamps: int64 microseconds since Unix epoch (the exchange sends
//     milliseconds, converted on decode)
//   - IDs: string business types for pairs, uuid.UUID for trade rows
package model
