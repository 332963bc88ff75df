// Package model defines stable boundary types for API layers.
//
// Consignment identity (canonical bytes and ids) is unaffected by any
// projection. These structs are the only types intended for direct JSON
// serialization by consumers such as the CLI's --json output.
package model
