// Package keys signs and verifies content signatures carried by consignments,
// and manages local signer seeds.
//
// A content signature covers a content id: the digest (Hash-Alg) of the id
// bytes is signed with the signer key (Alg). Supported algorithms are
// ed25519 and dilithium3; supported digests are sha256, sha512 and sha3-256.
//
// The filesystem KeyStore is a local-first convenience for the CLI and is not
// part of the consignment format.
package keys
