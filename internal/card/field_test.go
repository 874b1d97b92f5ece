package card

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescePicksFirstValue(t *testing.T) {
	cases := []struct {
		name string
		in   Field
		want Field
	}{
		{"list", List("+7 1", "+7 2"), Scalar("+7 1")},
		{"scalar", Scalar("+7 3"), Scalar("+7 3")},
		{"absent", Absent(), Absent()},
		{"empty list", List(), Absent()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := Coalesce(Record{Phone: tc.in, Email: tc.in, Links: tc.in})
			assert.Equal(t, tc.want, view.Phone)
			assert.Equal(t, tc.want, view.Email)
			assert.Equal(t, tc.want, view.Website)
		})
	}
}

func TestCoalesceKeepsScalarFields(t *testing.T) {
	rec := Record{
		Name:     Scalar("Иванов Иван"),
		Company:  Scalar("ООО Бизнес"),
		Position: Scalar("Директор"),
		Address:  Scalar("Москва"),
	}
	view := Coalesce(rec)
	assert.Equal(t, rec.Name, view.Name)
	assert.Equal(t, rec.Company, view.Company)
	assert.Equal(t, rec.Position, view.Position)
	assert.Equal(t, rec.Address, view.Address)
}

func TestFieldJSONForms(t *testing.T) {
	rec := Record{Name: Scalar("A"), Phone: List("1", "2")}
	encoded, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"A","company":null,"position":null,"phone":["1","2"],"address":null,"email":null,"links":null}`, string(encoded))

	var decoded Record
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, rec, decoded)
}

func TestFieldAccessors(t *testing.T) {
	v, ok := Scalar("x").Value()
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = List("x").Value()
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, List("a", "b").Values())
	assert.Nil(t, Absent().Values())
	assert.Equal(t, "<absent>", Absent().String())
	assert.Equal(t, "[a, b]", List("a", "b").String())
}
