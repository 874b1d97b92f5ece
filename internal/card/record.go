// Package card turns model replies into typed business-card records.
package card

// FieldNames lists the keys every normalized record carries, in output order.
var FieldNames = []string{"name", "company", "position", "phone", "address", "email", "links"}

// Record is the full recognition result. Phone, Email and Links are usually lists.
type Record struct {
	Name     Field `json:"name"`
	Company  Field `json:"company"`
	Position Field `json:"position"`
	Phone    Field `json:"phone"`
	Address  Field `json:"address"`
	Email    Field `json:"email"`
	Links    Field `json:"links"`
}

// field returns a pointer to the field stored under a FieldNames key.
func (r *Record) field(name string) *Field {
	switch name {
	case "name":
		return &r.Name
	case "company":
		return &r.Company
	case "position":
		return &r.Position
	case "phone":
		return &r.Phone
	case "address":
		return &r.Address
	case "email":
		return &r.Email
	case "links":
		return &r.Links
	}
	return nil
}

// View is the flattened form served to clients that need one value per field.
type View struct {
	Name     Field `json:"name"`
	Position Field `json:"position"`
	Company  Field `json:"company"`
	Phone    Field `json:"phone"`
	Email    Field `json:"email"`
	Website  Field `json:"website"`
	Address  Field `json:"address"`
}

// Coalesce reduces phone, email and links to their first value; links becomes website.
func Coalesce(r Record) View {
	return View{
		Name:     r.Name,
		Position: r.Position,
		Company:  r.Company,
		Phone:    first(r.Phone),
		Email:    first(r.Email),
		Website:  first(r.Links),
		Address:  r.Address,
	}
}

func first(f Field) Field {
	if v, ok := f.First(); ok {
		return Scalar(v)
	}
	return Absent()
}
