package world

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Contact is a social tie between an agent and someone it talks to.
type Contact struct {
	AgentID   string    `json:"agent_id"`
	ContactID string    `json:"contact_id"`
	Strength  float64   `json:"strength"` // 0-1
	History   []string  `json:"history"`  // interaction summaries
	LastSeen  time.Time `json:"last_seen"`
}

// ContactGraph stores social contacts in Neo4j and answers how long an agent
// has gone without contact.
type ContactGraph struct {
	driver    neo4j.DriverWithContext
	decayRate float64 // strength decay per tick, e.g. 0.001
	logger    *zap.Logger
}

// NewContactGraph connects to Neo4j.
func NewContactGraph(ctx context.Context, uri, user, password string, decayRate float64, logger *zap.Logger) (*ContactGraph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j: %w", err)
	}
	logger.Info("Neo4j contact graph connected", zap.String("uri", uri))
	return &ContactGraph{driver: driver, decayRate: decayRate, logger: logger}, nil
}

// RecordContact strengthens the tie between agentID and contactID, creating
// it if needed, and stamps it with at.
func (g *ContactGraph) RecordContact(ctx context.Context, agentID, contactID, summary string, boost float64, at time.Time) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:Agent {id: $agent})
		 MERGE (c:Contact {id: $contact})
		 MERGE (a)-[r:KNOWS]->(c)
		 ON CREATE SET r.strength = 0.0, r.history = []
		 SET r.strength = CASE WHEN r.strength + $boost > 1.0 THEN 1.0 ELSE r.strength + $boost END,
		     r.history = (r.history + $summary)[-20..],
		     r.last_seen = $at`,
		map[string]interface{}{
			"agent":   agentID,
			"contact": contactID,
			"boost":   boost,
			"summary": summary,
			"at":      at.UTC(),
		})
	if err != nil {
		return fmt.Errorf("record contact: %w", err)
	}
	return nil
}

// Contacts returns all ties of an agent, strongest first.
func (g *ContactGraph) Contacts(ctx context.Context, agentID string) ([]Contact, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {id: $agent})-[r:KNOWS]->(c:Contact)
		 RETURN c.id, r.strength, r.history, r.last_seen
		 ORDER BY r.strength DESC`,
		map[string]interface{}{"agent": agentID})
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}

	var contacts []Contact
	for result.Next(ctx) {
		rec := result.Record()
		id, _ := rec.Get("c.id")
		strength, _ := rec.Get("r.strength")
		history, _ := rec.Get("r.history")
		lastSeen, _ := rec.Get("r.last_seen")

		c := Contact{AgentID: agentID}
		c.ContactID, _ = id.(string)
		c.Strength, _ = strength.(float64)
		c.History = toStrings(history)
		c.LastSeen, _ = lastSeen.(time.Time)
		contacts = append(contacts, c)
	}
	return contacts, result.Err()
}

// HoursSinceContact reports the world hours since the agent's most recent
// contact. ok is false when the agent has never had one.
func (g *ContactGraph) HoursSinceContact(ctx context.Context, agentID string, now time.Time) (hours float64, ok bool, err error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {id: $agent})-[r:KNOWS]->(:Contact)
		 RETURN max(r.last_seen) AS last`,
		map[string]interface{}{"agent": agentID})
	if err != nil {
		return 0, false, fmt.Errorf("last contact: %w", err)
	}
	if !result.Next(ctx) {
		return 0, false, result.Err()
	}
	v, _ := result.Record().Get("last")
	last, isTime := v.(time.Time)
	if !isTime {
		return 0, false, nil
	}
	h := now.Sub(last).Hours()
	if h < 0 {
		h = 0
	}
	return h, true, nil
}

// OnTick implements ClockListener. Decays all tie strengths over time.
func (g *ContactGraph) OnTick(worldTime time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (:Agent)-[r:KNOWS]->(:Contact)
		 WHERE r.strength > 0
		 SET r.strength = CASE WHEN r.strength - $decay < 0 THEN 0 ELSE r.strength - $decay END`,
		map[string]interface{}{"decay": g.decayRate})
	if err != nil {
		g.logger.Warn("contact decay tick failed", zap.Error(err))
	}
}

// Close shuts down the driver.
func (g *ContactGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func toStrings(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
