// Package testutil provides test doubles for chunkcache tests.
//
// This package is intended for use in tests only.
//
// # Instrumented Store
//
//	store := testutil.NewStore()
//	store.FailPuts(func(name string) bool { return strings.HasSuffix(name, "/1.chk") })
//	release := store.HoldPuts()
//	defer release()
//	n := store.Opens()
//
// # Random Values
//
//	rng := testutil.NewRNG(seed)
//	v := rng.String(4096) // incompressible
package testutil
