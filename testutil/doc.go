// Package testutil provides testing utilities for vecsearch.
//
// This package is intended for use in tests only. It provides helpers for
// generating reproducible random vectors and transcript records, and an
// exact reference ranking to check index results against.
//
// # Random Vectors
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(100, 8)
//
// # Records
//
//	recs := rng.Records(100, 8)            // ids rec-0000 ... rec-0099
//	want := testutil.ExactTopK(q, recs, 5, distance.MetricCosine)
package testutil
