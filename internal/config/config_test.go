package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("RESERVA_PORT", "8081")
	t.Setenv("RESERVA_LOG_JSON", "false")
	t.Setenv("RESERVA_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RESERVA_EXPIRY_WARNING", "20s")
	t.Setenv("RESERVA_SWEEP_INTERVAL", "45")
	t.Setenv("RESERVA_RESERVATION_WINDOW", "nonsense")

	c := EnvDefaults()
	assert.Equal(t, 8081, c.Port)
	assert.False(t, c.LogJSON)
	assert.Equal(t, "k1:9092,k2:9092", c.KafkaBrokers)
	assert.Equal(t, 20*time.Second, c.ExpiryWarning)
	assert.Equal(t, 45*time.Second, c.SweepInterval)
	assert.Equal(t, 30*time.Minute, c.ReservationWindow)
	assert.Equal(t, "order-events", c.KafkaTopic)
}

func TestFromEnv_BadPortKeepsDefault(t *testing.T) {
	t.Setenv("RESERVA_PORT", "http")
	assert.Equal(t, 5000, EnvDefaults().Port)
}
