package i18n

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_DefaultsToPortuguese(t *testing.T) {
	c, err := New("pt-BR")
	require.NoError(t, err)
	assert.Len(t, c.Tags(), 2)

	z := c.Localizer()
	assert.Equal(t, "Participante já registrou entrada. Registre a saída primeiro.", z.Message("error.already_inside", nil))
	assert.Equal(t, `Status: pending. Use "Forçar entrada" para ignorar.`, z.Message("error.participant_not_approved", map[string]any{"Status": "pending"}))
	assert.Equal(t, "no.such.message", z.Message("no.such.message", nil))
}

func TestCatalog_AcceptLanguage(t *testing.T) {
	c, err := New("pt-BR")
	require.NoError(t, err)

	assert.Equal(t, "Event not found.", c.Localizer("en-US,en;q=0.9").Message("error.event_not_found", nil))
	assert.Equal(t, "Evento não encontrado.", c.Localizer("fr-FR").Message("error.event_not_found", nil))
}

func TestCatalog_EveryIDInBothLanguages(t *testing.T) {
	c, err := New("pt-BR")
	require.NoError(t, err)
	ids := []string{
		"error.participant_id_required", "error.event_id_required", "error.identifier_required",
		"error.invalid_access_type", "error.invalid_verification_method", "error.invalid_filter",
		"error.participant_not_found", "error.participant_not_in_event", "error.event_not_found",
		"error.participant_not_approved", "error.already_inside", "error.not_inside",
		"error.ambiguous_identifier", "error.duplicate_scan", "error.internal_error",
		"verify.event_inactive", "verify.outside_dates", "verify.approved", "verify.rejected", "verify.pending",
	}
	for _, lang := range []string{"pt-BR", "en"} {
		z := c.Localizer(lang)
		for _, id := range ids {
			assert.NotEqual(t, id, z.Message(id, map[string]any{}), "%s %s", lang, id)
		}
	}
}

func TestTimeSince(t *testing.T) {
	c, err := New("pt-BR")
	require.NoError(t, err)
	z := c.Localizer()

	assert.Equal(t, "agora", z.TimeSince(30*time.Second))
	assert.Equal(t, "5 min atrás", z.TimeSince(5*time.Minute+10*time.Second))
	assert.Equal(t, "2h 3min atrás", z.TimeSince(2*time.Hour+3*time.Minute))
	assert.Equal(t, "1 dia atrás", z.TimeSince(25*time.Hour))
	assert.Equal(t, "3 days ago", c.Localizer("en").TimeSince(72*time.Hour))

	var nilZ *Localizer
	assert.Equal(t, "time.now", nilZ.TimeSince(0))
}

func TestNewRejectsBadLocale(t *testing.T) {
	_, err := New("not a locale!")
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, err := New("pt-BR")
	require.NoError(t, err)

	r := gin.New()
	r.Use(Middleware(c))
	r.GET("/x", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, From(ctx).Message("verify.outside_dates", nil))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Accept-Language", "en")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "Outside the event dates.", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?lang=pt-BR", nil))
	assert.Equal(t, "Fora do período do evento.", w.Body.String())
}
