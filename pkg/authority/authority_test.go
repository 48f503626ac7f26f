package authority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/centroplan/vysync/pkg/entities"
)

func TestDefaultOwnerFallsBackToVCOM(t *testing.T) {
	a := New()

	assert.Equal(t, entities.SystemVCOM, a.Owner(entities.SiteFieldName, entities.KindSite))
	assert.Equal(t, entities.SystemVCOM, a.Owner(entities.SiteFieldProjectNumberCP, entities.KindSite))
	assert.Equal(t, entities.SystemVCOM, a.Owner(entities.EquipmentFieldSerialNumber, entities.KindEquipment))
}

func TestYumanOwnedFields(t *testing.T) {
	a := New()

	assert.Equal(t, entities.SystemYuman, a.Owner(entities.SiteFieldAldiID, entities.KindSite))
	assert.Equal(t, entities.SystemYuman, a.Owner(entities.SiteFieldAldiStoreID, entities.KindSite))
	assert.Equal(t, entities.SystemYuman, a.Owner(entities.TicketFieldStatus, entities.KindTicket))
	assert.Equal(t, entities.SystemYuman, a.Owner(entities.TicketFieldPriority, entities.KindTicket))
	assert.Equal(t, entities.SystemVCOM, a.Owner(entities.TicketFieldTitle, entities.KindTicket))
}

func TestOverridesWinByPriority(t *testing.T) {
	a := NewWithOverrides(entities.KindSite,
		Field{Pattern: "aldi_id", Source: entities.SystemVCOM, Priority: 20},
	)

	// More specific, higher priority override beats the aldi_* default.
	assert.Equal(t, entities.SystemVCOM, a.Owner(entities.SiteFieldAldiID, entities.KindSite))
	assert.Equal(t, entities.SystemYuman, a.Owner(entities.SiteFieldAldiStoreID, entities.KindSite))
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, MatchesPattern("aldi_id", "aldi_*"))
	assert.True(t, MatchesPattern("aldi_store_id", "aldi_*"))
	assert.True(t, MatchesPattern("status", "status"))
	assert.False(t, MatchesPattern("name", "aldi_*"))
}
