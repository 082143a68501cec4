// Package model defines core types used throughout vecsearch.
//
//   - Record: id, vector, document text and metadata
//   - Candidate: raw index hit (id + metric value)
//   - Result: ranked query hit with a normalized similarity score
//   - CollectionInfo: name, dimension and metric of a collection
package model
