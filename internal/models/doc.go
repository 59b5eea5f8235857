// Package models defines the core domain records for tripledger.
//
// # Models
//
//   - Expense: one shared expense, with its Split strategy (equal, weighted,
//     or itemized) as a sum type
//   - PersonSummary: a participant's paid/owed/net position for a trip
//   - PairwiseDebt, MinimalTransfer: settlement output records
//   - Payment: a manually recorded payment between participants
//   - Category, PersonCategorySpending: category spending output
//
// # Design Principles
//
//  1. **Exact arithmetic**: every monetary field is a shopspring decimal,
//     serialized as an exact decimal string at any persistence boundary
//  2. **Immutable values**: records are created fresh on each computation;
//     only MinimalTransfer's settled flag is mutated, by the storage layer
//  3. **Sum type splits**: itemized-only data (canonical participant
//     amounts) is only reachable through the ItemizedSplit variant
//  4. **Avoid circular references**: relationships use ID strings, not
//     pointers
package models
