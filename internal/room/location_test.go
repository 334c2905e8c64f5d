package room

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		ok   bool
	}{
		{"origin", NewLocation(0, 0), true},
		{"bounds", NewLocation(-90, 180), true},
		{"lat too high", NewLocation(90.0001, 0), false},
		{"lng too low", NewLocation(0, -180.5), false},
		{"missing lat", Location{Lng: NewLocation(0, 1).Lng}, false},
		{"missing both", Location{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidLocation)
			}
		})
	}
}

func TestLocationNullFieldsAreInvalid(t *testing.T) {
	var loc Location
	require.NoError(t, json.Unmarshal([]byte(`{"lat":null,"lng":12.5}`), &loc))
	assert.ErrorIs(t, loc.Validate(), ErrInvalidLocation)
}

func TestLocationEncoding(t *testing.T) {
	b, err := json.Marshal(NewLocation(12.9716, 77.5946))
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":12.9716,"lng":77.5946}`, string(b))
}
