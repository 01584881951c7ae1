package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testPolicy() Policy {
	return Policy{
		ShortTimeout:   10 * time.Second,
		DefaultTimeout: 30 * time.Second,
		MediaTimeout:   60 * time.Second,
		HealthTimeout:  5 * time.Second,
	}
}

func TestPolicy_Timeout_resolvesEachCategory(t *testing.T) {
	p := testPolicy()
	assert.Equal(t, 10*time.Second, p.Timeout(Short))
	assert.Equal(t, 30*time.Second, p.Timeout(Default))
	assert.Equal(t, 60*time.Second, p.Timeout(Media))
	assert.Equal(t, 5*time.Second, p.Timeout(Health))
}

func TestPolicy_Timeout_unknownCategoryFallsBackToDefault(t *testing.T) {
	p := testPolicy()
	assert.Equal(t, p.DefaultTimeout, p.Timeout(TimeoutCategory("BOGUS")))
}

func TestNew_doesNotSetClientLevelTimeout(t *testing.T) {
	c := New()
	assert.Zero(t, c.Timeout, "per-request deadlines come from Policy.Timeout, not Client.Timeout")
	assert.NotNil(t, c.Transport)
}
