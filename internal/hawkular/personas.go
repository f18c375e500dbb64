package hawkular

import (
	"context"

	"hawkview/internal/models"
)

// CurrentPersona is not tenant scoped; the accounts service resolves it from
// the caller.
func (c *Client) CurrentPersona(ctx context.Context) (models.Persona, error) {
	var p models.Persona
	if _, err := c.getJSON(ctx, "", "/hawkular/accounts/personas/current", nil, &p); err != nil {
		return models.Persona{}, err
	}
	return p, nil
}

func (c *Client) Personas(ctx context.Context) ([]models.Persona, error) {
	var out []models.Persona
	if _, err := c.getJSON(ctx, "", "/hawkular/accounts/personas", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
