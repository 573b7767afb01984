// Package api implements the REST surface of the rule service: rule CRUD
// with validate-by-parse on every write, an ad hoc parse endpoint, health
// and metrics.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/lemonberrylabs/rulekit/pkg/expr"
	"github.com/lemonberrylabs/rulekit/pkg/metrics"
	"github.com/lemonberrylabs/rulekit/pkg/ruleset"
	"github.com/lemonberrylabs/rulekit/pkg/store"
	"github.com/lemonberrylabs/rulekit/pkg/types"
)

// Server is the rule service API server.
type Server struct {
	app     *fiber.App
	store   *store.Store
	parser  *expr.Parser
	metrics *metrics.Metrics
	logger  *slog.Logger

	// default field type hints; swapped wholesale by ApplyRuleset while
	// request handlers read concurrently
	mu     sync.RWMutex
	fields map[string]types.Type
}

// New creates a new API server. fields supplies the default type hints used
// when a request declares none; it may be nil.
func New(s *store.Store, parser *expr.Parser, m *metrics.Metrics, logger *slog.Logger, fields map[string]types.Type) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		store:   s,
		parser:  parser,
		metrics: m,
		logger:  logger,
		fields:  fields,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Post("/v1/parse", srv.parse)

	app.Post("/v1/rules", srv.createRule)
	app.Get("/v1/rules", srv.listRules)
	app.Get("/v1/rules/:id", srv.getRule)
	app.Patch("/v1/rules/:id", srv.updateRule)
	app.Delete("/v1/rules/:id", srv.deleteRule)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// ApplyRuleset replaces the deployed rules with a freshly loaded ruleset and
// adopts its field declarations as the default hints.
func (s *Server) ApplyRuleset(rs *ruleset.Ruleset) {
	rules := make([]*store.Rule, len(rs.Rules))
	for i, r := range rs.Rules {
		rules[i] = &store.Rule{
			ID:          r.ID,
			Description: r.Description,
			Expression:  r.Expression,
			Symbols:     r.Symbols,
		}
	}
	s.store.Replace(rules)
	s.mu.Lock()
	s.fields = rs.Fields
	s.mu.Unlock()
	s.metrics.SetRulesLoaded(s.store.Len())
	s.logger.Info("ruleset applied", "rules", len(rules), "fields", len(rs.Fields))
}

// fieldHints returns the current default hints. The map is replaced, never
// mutated, so handing out the reference is safe.
func (s *Server) fieldHints() map[string]types.Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields
}

// --- Parse Handler ---

type parseRequest struct {
	Expression string            `json:"expression"`
	Fields     map[string]string `json:"fields"`
}

func (s *Server) parse(c *fiber.Ctx) error {
	var req parseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Expression == "" {
		return badRequest(c, "expression is required")
	}

	hints := s.fieldHints()
	if req.Fields != nil {
		hints = make(map[string]types.Type, len(req.Fields))
		for name, typeName := range req.Fields {
			t, ok := types.Parse(typeName)
			if !ok {
				return badRequest(c, fmt.Sprintf("field %q: unknown type %q", name, typeName))
			}
			hints[name] = t
		}
	}

	ctx := ruleset.NewFieldContext(hints)
	start := time.Now()
	stmt, err := s.parser.Parse(req.Expression, ctx)
	elapsed := time.Since(start)

	if err != nil {
		kind, line := classifyError(err)
		s.metrics.ObserveParse(kind, elapsed)
		return parseError(c, err, kind, line)
	}
	s.metrics.ObserveParse(metrics.ResultOK, elapsed)

	return c.JSON(fiber.Map{
		"ast":        stmt,
		"symbols":    ctx.Symbols(),
		"resultType": stmt.Expression.Type().String(),
	})
}

// --- Rule Handlers ---

type ruleRequest struct {
	ID          string `json:"id"`
	Expression  string `json:"expression"`
	Description string `json:"description"`
}

func (s *Server) createRule(c *fiber.Ctx) error {
	var req ruleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	if !ruleset.ValidID(req.ID) {
		return badRequest(c, fmt.Sprintf("invalid rule id %q", req.ID))
	}
	if req.Expression == "" {
		return badRequest(c, "expression is required")
	}

	symbols, err := s.validate(req.Expression)
	if err != nil {
		kind, line := classifyError(err)
		return parseError(c, err, kind, line)
	}

	rule, err := s.store.CreateRule(req.ID, req.Expression, req.Description, symbols)
	if err != nil {
		return errorJSON(c, 409, err.Error(), "ALREADY_EXISTS")
	}
	s.metrics.SetRulesLoaded(s.store.Len())
	s.logger.Info("rule created", "id", rule.ID, "revision", rule.RevisionID)

	return c.Status(200).JSON(rule)
}

func (s *Server) getRule(c *fiber.Ctx) error {
	rule, err := s.store.GetRule(c.Params("id"))
	if err != nil {
		return errorJSON(c, 404, err.Error(), "NOT_FOUND")
	}
	return c.JSON(rule)
}

func (s *Server) listRules(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rules": s.store.ListRules()})
}

func (s *Server) updateRule(c *fiber.Ctx) error {
	var req ruleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}

	var symbols []string
	if req.Expression != "" {
		var err error
		symbols, err = s.validate(req.Expression)
		if err != nil {
			kind, line := classifyError(err)
			return parseError(c, err, kind, line)
		}
	}

	rule, err := s.store.UpdateRule(c.Params("id"), req.Expression, req.Description, symbols)
	if err != nil {
		return errorJSON(c, 404, err.Error(), "NOT_FOUND")
	}
	s.logger.Info("rule updated", "id", rule.ID, "revision", rule.RevisionID)
	return c.JSON(rule)
}

func (s *Server) deleteRule(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.store.DeleteRule(id); err != nil {
		return errorJSON(c, 404, err.Error(), "NOT_FOUND")
	}
	s.metrics.SetRulesLoaded(s.store.Len())
	s.logger.Info("rule deleted", "id", id)
	return c.JSON(fiber.Map{"deleted": id})
}

// validate parses an expression against the default field hints and reports
// the symbols it references. The parse error, if any, is returned for the
// handler to map onto a response; validate never writes to the connection.
func (s *Server) validate(expression string) ([]string, error) {
	ctx := ruleset.NewFieldContext(s.fieldHints())
	start := time.Now()
	_, err := s.parser.Parse(expression, ctx)
	elapsed := time.Since(start)

	if err != nil {
		kind, _ := classifyError(err)
		s.metrics.ObserveParse(kind, elapsed)
		return nil, err
	}
	s.metrics.ObserveParse(metrics.ResultOK, elapsed)
	return ctx.Symbols(), nil
}

// --- Error Helpers ---

func classifyError(err error) (kind string, line int) {
	var lexErr *expr.LexicalError
	var synErr *expr.SyntaxError
	var semErr *expr.SemanticError
	switch {
	case errors.As(err, &lexErr):
		return metrics.ResultLexical, lexErr.Line
	case errors.As(err, &synErr):
		return metrics.ResultSyntax, synErr.Token.Line
	case errors.As(err, &semErr):
		return metrics.ResultSemantic, 0
	default:
		return metrics.ResultOther, 0
	}
}

func parseError(c *fiber.Ctx, err error, kind string, line int) error {
	payload := fiber.Map{
		"code":    400,
		"message": err.Error(),
		"status":  "INVALID_ARGUMENT",
		"kind":    kind,
	}
	if line > 0 {
		payload["line"] = line
	}
	return c.Status(400).JSON(fiber.Map{"error": payload})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return errorJSON(c, 400, msg, "INVALID_ARGUMENT")
}

func errorJSON(c *fiber.Ctx, code int, msg, status string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
			"status":  status,
		},
	})
}
