// Package schema is the table registry: per-table field descriptors
// loaded from CUE, with default construction, repair of partial records
// and validation.
//
// A table is declared as
//
//	table: Customer: fields: {
//		name:    "string"
//		status:  {type: "enum", values: ["active", "closed"]}
//		owner:   {type: "uuid", linkTo: "User"}
//		contact: {type: "record", fields: {phone: "phone"}}
//		lines:   {type: "array", items: {type: "record", fields: {qty: "quantity"}}}
//	}
//
// Every table implicitly carries id (uuid) and recordVersion (version).
package schema
