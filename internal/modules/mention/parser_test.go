package mention

import (
	"testing"

	"anoa.com/casethreads/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ExplicitMarkup(t *testing.T) {
	id := uuid.MustParse("0190f1a2-3b4c-7d5e-8f60-718293a4b5c6")
	text := "Check the bait stations " + Markup("Tech One", id) + " please"

	tokens := Parse(text)
	require.Len(t, tokens, 1)

	tok := tokens[0]
	assert.Equal(t, KindUser, tok.Kind)
	assert.True(t, tok.Explicit())
	assert.Equal(t, id, tok.UserID)
	assert.Equal(t, "Tech One", tok.Name)
	assert.Equal(t, 24, tok.Start)
	assert.Equal(t, Markup("Tech One", id), tok.Raw)
}

func TestParse_RoleKeywords(t *testing.T) {
	tokens := Parse("@Tekniker och @KOORDINATOR, titta. @alla! @admin")
	require.Len(t, tokens, 4)

	assert.Equal(t, KindRole, tokens[0].Kind)
	assert.Equal(t, entity.RoleTechnician, tokens[0].Role)
	assert.Equal(t, KindRole, tokens[1].Kind)
	assert.Equal(t, entity.RoleKoordinator, tokens[1].Role)
	assert.Equal(t, KindAll, tokens[2].Kind)
	assert.Equal(t, KindRole, tokens[3].Kind)
	assert.Equal(t, entity.RoleAdmin, tokens[3].Role)
}

func TestParse_RoleKeywordMustBeWholeWord(t *testing.T) {
	assert.Empty(t, Parse("mail support@admin.se"))
	assert.Empty(t, Parse("@administrators are busy"))
	assert.Empty(t, Parse("@allan"))
}

func TestParse_NameHeuristic(t *testing.T) {
	tokens := Parse("Hej @Anna Berg, kan du kolla? Också @Erik.")
	require.Len(t, tokens, 2)

	assert.Equal(t, KindUser, tokens[0].Kind)
	assert.False(t, tokens[0].Explicit())
	assert.Equal(t, "Anna Berg", tokens[0].Name)
	assert.Equal(t, "Erik", tokens[1].Name)
}

func TestParse_NameHeuristicCapsAtFourWords(t *testing.T) {
	tokens := Parse("@Anna Maria Berg Lind Svensson")
	require.Len(t, tokens, 1)
	assert.Equal(t, "Anna Maria Berg Lind", tokens[0].Name)
}

func TestParse_NameHeuristicRequiresBoundary(t *testing.T) {
	assert.Empty(t, Parse("@anna lowercase does not count"))
	assert.Empty(t, Parse("user@Example"))
}

func TestParse_HeuristicDisabledWhenExplicitMarkupPresent(t *testing.T) {
	id := uuid.New()
	tokens := Parse(Markup("Tech One", id) + " and @Anna Berg")
	require.Len(t, tokens, 1)
	assert.Equal(t, id, tokens[0].UserID)
}

func TestParse_RoleClaimsBeforeHeuristic(t *testing.T) {
	tokens := Parse("@Admin Team please look")
	require.Len(t, tokens, 1)
	assert.Equal(t, KindRole, tokens[0].Kind)
	assert.Equal(t, entity.RoleAdmin, tokens[0].Role)
}

func TestParse_OrderedByOffset(t *testing.T) {
	id := uuid.New()
	text := "@alla " + Markup("Erik", id) + " @tekniker"

	tokens := Parse(text)
	require.Len(t, tokens, 3)
	assert.Equal(t, KindAll, tokens[0].Kind)
	assert.Equal(t, KindUser, tokens[1].Kind)
	assert.Equal(t, KindRole, tokens[2].Kind)
	assert.Less(t, tokens[0].Start, tokens[1].Start)
	assert.Less(t, tokens[1].Start, tokens[2].Start)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("no mentions here @ all"))
}

func TestDisplayNames(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	names := DisplayNames(Markup("Anna", a) + " " + Markup("Bo", b) + " " + Markup("Anna B", a))

	assert.Equal(t, map[uuid.UUID]string{a: "Anna", b: "Bo"}, names)
}
