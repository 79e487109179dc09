package validate

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVoterID_AntiPatterns(t *testing.T) {
	t.Parallel()

	for d := 0; d <= 9; d++ {
		id := strings.Repeat(fmt.Sprint(d), 8)
		require.False(t, VoterID(id), "repeated %s must be rejected", id)
	}
	for _, id := range []string{"01234567", "12345678", "23456789"} {
		require.False(t, VoterID(id), "ascending %s must be rejected", id)
	}

	// Descending and wrapping runs are not the anti-pattern.
	for _, id := range []string{"87654321", "89012345", "10000001", "11111112", "12345679"} {
		require.True(t, VoterID(id), "%s must be accepted", id)
	}
}

func TestVoterID_SampledSpace(t *testing.T) {
	t.Parallel()

	rejected := map[string]bool{"01234567": true, "12345678": true, "23456789": true}
	for d := 0; d <= 9; d++ {
		rejected[strings.Repeat(fmt.Sprint(d), 8)] = true
	}

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20000; i++ {
		id := fmt.Sprintf("%08d", r.Intn(100000000))
		if got := VoterID(id); got == rejected[id] {
			t.Fatalf("VoterID(%s)=%v", id, got)
		}
	}
	for id := range rejected {
		require.False(t, VoterID(id))
	}
}

func TestVoterID_Shape(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "1234567", "123456789", "1234567a", " 10000001", "１0000001"} {
		require.False(t, VoterID(id), "%q", id)
	}
}

func TestCandidateID(t *testing.T) {
	t.Parallel()

	require.True(t, CandidateID("C1"))
	require.True(t, CandidateID("party_A_10"))
	require.False(t, CandidateID(""))
	require.False(t, CandidateID("ABCDEFGHIJK"))
	require.False(t, CandidateID("C-1"))
	require.False(t, CandidateID("C:1"))
}

func TestName(t *testing.T) {
	t.Parallel()

	require.True(t, Name("Alice"))
	require.True(t, Name("  Mary Ann  "))
	require.False(t, Name("A"))
	require.False(t, Name("R2D2"))
	require.False(t, Name(strings.Repeat("a", 51)))
}

func TestPartyName(t *testing.T) {
	t.Parallel()

	require.True(t, PartyName("Green"))
	require.True(t, PartyName("Party 42"))
	require.False(t, PartyName("G"))
	require.False(t, PartyName("Green!"))
	require.False(t, PartyName(strings.Repeat("p", 31)))
}

func TestSafeInput(t *testing.T) {
	t.Parallel()

	require.True(t, SafeInput("admin"))
	require.True(t, SafeInput("p@ss word:1"))
	require.False(t, SafeInput(""))
	require.False(t, SafeInput("   "))
	require.False(t, SafeInput(strings.Repeat("x", 101)))
	for _, bad := range []string{"<a", "a>", `a\b`, "o'neil", `"q"`} {
		require.False(t, SafeInput(bad), "%q", bad)
	}
}
