package schema

// Kind is a field's storage type.
type Kind string

const (
	KindString     Kind = "string"
	KindPhone      Kind = "phone"
	KindBinary     Kind = "binary"
	KindMoney      Kind = "money"
	KindPercentage Kind = "percentage"
	KindQuantity   Kind = "quantity"

	KindMoneyNullable      Kind = "money?"
	KindPercentageNullable Kind = "percentage?"
	KindQuantityNullable   Kind = "quantity?"

	KindBoolean         Kind = "boolean"
	KindBooleanNullable Kind = "boolean?"

	KindUUID     Kind = "uuid"
	KindDate     Kind = "date"
	KindDateTime Kind = "datetime"
	KindEnum     Kind = "enum"

	KindArray         Kind = "array"
	KindArrayNullable Kind = "array?"
	KindRecord        Kind = "record"

	// KindVersion is reserved for recordVersion.
	KindVersion Kind = "version"
)

var knownKinds = map[Kind]bool{
	KindString: true, KindPhone: true, KindBinary: true,
	KindMoney: true, KindPercentage: true, KindQuantity: true,
	KindMoneyNullable: true, KindPercentageNullable: true, KindQuantityNullable: true,
	KindBoolean: true, KindBooleanNullable: true,
	KindUUID: true, KindDate: true, KindDateTime: true, KindEnum: true,
	KindArray: true, KindArrayNullable: true, KindRecord: true,
	KindVersion: true,
}

// Nullable reports whether null is a legal value for the kind.
func (k Kind) Nullable() bool {
	switch k {
	case KindMoneyNullable, KindPercentageNullable, KindQuantityNullable,
		KindBooleanNullable, KindArrayNullable,
		KindUUID, KindDate, KindDateTime, KindVersion:
		return true
	}
	return false
}

// Field describes one field of a record.
type Field struct {
	Name string
	Kind Kind

	// LinkTo names the table a uuid field refers to.
	LinkTo string

	// Values lists the legal values of an enum, first is the default.
	Values []string

	// Items describes array elements.
	Items *Field

	// Fields lists the members of a nested record in declaration order.
	Fields []*Field
}

// Default returns the value a missing field is filled with.
func (f *Field) Default() any {
	switch f.Kind {
	case KindString, KindPhone, KindBinary:
		return ""
	case KindMoney, KindPercentage, KindQuantity:
		return "0"
	case KindBoolean:
		return false
	case KindEnum:
		if len(f.Values) > 0 {
			return f.Values[0]
		}
		return ""
	case KindArray:
		return []any{}
	case KindRecord:
		return defaultObject(f.Fields)
	}
	return nil
}

func defaultObject(fields []*Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Default()
	}
	return out
}
