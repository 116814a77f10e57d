package model

// Enriched field keys.
const (
	FieldOwner         = "franchisee_owner"
	FieldCorporateName = "corporate_name"
	FieldAddress       = "corporate_address"
	FieldPhone         = "corporate_phone"
	FieldEmail         = "corporate_email"
	FieldLinkedIn      = "linkedin"
)

// TargetFields lists every field the engine tries to populate, in output order.
var TargetFields = []string{
	FieldOwner,
	FieldCorporateName,
	FieldAddress,
	FieldPhone,
	FieldEmail,
	FieldLinkedIn,
}

// Fields maps a field key to a value. Empty values are never stored.
type Fields map[string]string

// Set stores v under key when v is non-empty.
func (f Fields) Set(key, v string) {
	if v == "" {
		return
	}
	f[key] = v
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Populated counts keys with non-empty values.
func (f Fields) Populated() int {
	n := 0
	for _, v := range f {
		if v != "" {
			n++
		}
	}
	return n
}
