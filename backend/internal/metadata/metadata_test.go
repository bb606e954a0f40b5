package metadata_test

import (
	"testing"

	"github.com/rdvproject/rdv/backend/internal/metadata"
	"github.com/stretchr/testify/require"
)

func TestValidateLenient(t *testing.T) {
	v := &metadata.JSONValidator{Required: []string{"title"}}

	require.NoError(t, v.Validate([]byte(`{}`), false))
	require.NoError(t, v.Validate([]byte(`{"other":1}`), false))

	err := v.Validate([]byte(`{"broken`), false)
	require.Error(t, err)
	require.IsType(t, &metadata.InvalidError{}, err)

	err = v.Validate([]byte(`null`), false)
	require.Error(t, err)
}

func TestValidateStrict(t *testing.T) {
	v := &metadata.JSONValidator{Required: []string{"title", "author"}}

	doc := []byte(`{"title":"t","author":"a"}`)
	require.NoError(t, v.Validate(doc, true))

	err := v.Validate([]byte(`{"title":"t"}`), true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "author")
}
