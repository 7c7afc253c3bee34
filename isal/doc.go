// Package isal exposes the Galois-field and erasure-coding API of Intel
// ISA-L to Go.
//
// The package body is generated. Run go generate in this directory to
// provision the library and write zisal.go and zisal_link.go.
package isal

//go:generate go run ../cmd/isalgen generate --wrapper ../third_party/wrapper.h --vendor ../third_party/isa-l --bindings .
