// Package dns provides DNS protocol parsing, encoding, and packet manipulation.
//
// Standards Compliance:
//
// This package implements DNS protocol features from the following RFCs:
//
//   - RFC 1035: Domain Names - Implementation and Specification (core DNS protocol)
//   - RFC 1034: Domain Names - Concepts and Facilities (DNS concepts)
//   - RFC 3596: DNS Extensions to Support IPv6 (AAAA record type code)
//   - RFC 4035: DNSSEC Protocol Extensions (AD, CD flag bits only; no validation)
//   - RFC 6891: Extension Mechanisms for DNS (EDNS, OPT records, preserved opaque)
//
// Buffer-Owned Design:
//
// Message wraps an owned byte buffer and exposes fields by bit/byte
// arithmetic at access time rather than decoding into a fully-typed tree;
// mutation happens in place, or via splicing for AddAnswer. This favors
// the hot path (parse, mutate a few fields, forward) over exhaustive
// per-record-type decoding.
//
// Error Handling:
//
// All errors wrap ErrDNSError with context using fmt.Errorf("%w: ...", ErrDNSError).
// This preserves error chains while adding operational context.
package dns

import "errors"

var (
	// ErrDNSError is a sentinel error type for DNS protocol violations.
	// Wrap this with fmt.Errorf("%w: context", ErrDNSError) to add context.
	ErrDNSError = errors.New("dns wire error")
)
