// Package ingest turns loosely structured rows into valid records.
//
// Each row passes through the same steps in order:
//
//  1. resolve the id (trimmed, generated when blank, suffixed with the
//     1-based row index when it collides with an earlier row)
//  2. parse the embedding from a delimited string, a tensor(...) literal
//     or a typed slice, or embed the row's text when no vector is given
//  3. check the vector length against the collection dimension
//  4. normalise metadata onto the canonical keys
//  5. emit a record or a Rejection carrying the row index and reason
//
// Rows never abort the batch. Only context cancellation does.
package ingest
