package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/provider"
)

func TestSignedInAllCombinations(t *testing.T) {
	values := [4]string{"ada", "OpenAI", "sk-1", "gpt-4o"}
	for mask := 0; mask < 16; mask++ {
		var v [4]string
		for i := range v {
			if mask&(1<<i) != 0 {
				v[i] = values[i]
			}
		}
		f := Form{Username: v[0], Provider: v[1], APIKey: v[2], Model: v[3]}
		assert.Equal(t, mask == 15, f.SignedIn(), "mask %04b", mask)
		assert.Len(t, f.Missing(), 4-popcount(mask))
	}
}

func popcount(m int) int {
	n := 0
	for ; m > 0; m >>= 1 {
		n += m & 1
	}
	return n
}

func TestSetRecomputesEagerly(t *testing.T) {
	f := Form{Provider: "OpenAI"}

	ok, err := f.Set(FieldUsername, "ada")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _ = f.Set(FieldAPIKey, "sk-1")
	ok, _ = f.Set(FieldModel, "gpt-4o")
	assert.True(t, ok)

	ok, _ = f.Set(FieldAPIKey, "  ")
	assert.False(t, ok)

	_, err = f.Set("colour", "blue")
	assert.Error(t, err)
}

func TestSetProviderClearsKeyAndModel(t *testing.T) {
	f := Form{Username: "ada", Provider: "OpenAI", APIKey: "sk-1", Model: "gpt-4o"}

	ok, err := f.Set(FieldProvider, "Groq")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.APIKey)
	assert.Empty(t, f.Model)
}

func TestSubmit(t *testing.T) {
	rec, err := Form{Username: "ada lovelace", Provider: "Antropic", APIKey: " key ", Model: "claude-3-haiku-20240307"}.Submit()
	require.NoError(t, err)
	assert.Equal(t, provider.Anthropic, rec.Provider)
	assert.Equal(t, "key", rec.APIKey)
	assert.Equal(t, DefaultTemperature, rec.Temperature)
	assert.Equal(t, "Dear Ada Lovelace, welcome to DeltaX Data Professor", rec.Welcome())

	_, err = Form{Username: "ada", Provider: "OpenAI"}.Submit()
	assert.ErrorIs(t, err, errx.ErrIncomplete)

	_, err = Form{Username: "ada", Provider: "Mistral", APIKey: "k", Model: "m"}.Submit()
	assert.ErrorIs(t, err, errx.ErrUnknownProvider)
}
