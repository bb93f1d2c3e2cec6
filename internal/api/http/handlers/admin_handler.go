package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/service"
	"github.com/spec-kit/helpdesk-core/internal/worker"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// AdminHandler manages SLA policies, escalation rules and sweep triggers.
type AdminHandler struct {
	policies repository.SlaPolicyRepository
	rules    repository.EscalationRuleRepository
	sla      *service.SlaService
	sweeper  *worker.Sweeper
}

// NewAdminHandler constructs handler.
func NewAdminHandler(policies repository.SlaPolicyRepository, rules repository.EscalationRuleRepository, sla *service.SlaService, sweeper *worker.Sweeper) *AdminHandler {
	return &AdminHandler{policies: policies, rules: rules, sla: sla, sweeper: sweeper}
}

// CreateSlaPolicy POST /admin/sla-policies.
func (h *AdminHandler) CreateSlaPolicy(c *fiber.Ctx) error {
	var req dto.SlaPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if err := validatePriorityHours(req.FirstResponseHours); err != nil {
		return err
	}
	if err := validatePriorityHours(req.ResolutionHours); err != nil {
		return err
	}

	policy := &domain.SlaPolicy{
		Name:               req.Name,
		Description:        req.Description,
		FirstResponseHours: req.FirstResponseHours,
		ResolutionHours:    req.ResolutionHours,
		IsActive:           true,
		IsDefault:          req.IsDefault,
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	if err := h.policies.Create(c.UserContext(), policy); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": slaPolicyResponse(policy)})
}

// UpdateSlaPolicy PUT /admin/sla-policies/:id.
func (h *AdminHandler) UpdateSlaPolicy(c *fiber.Ctx) error {
	policy, err := h.policies.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	var req dto.SlaPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validatePriorityHours(req.FirstResponseHours); err != nil {
		return err
	}
	if err := validatePriorityHours(req.ResolutionHours); err != nil {
		return err
	}

	if req.Name != "" {
		policy.Name = req.Name
	}
	policy.Description = req.Description
	if req.FirstResponseHours != nil {
		policy.FirstResponseHours = req.FirstResponseHours
	}
	if req.ResolutionHours != nil {
		policy.ResolutionHours = req.ResolutionHours
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	policy.IsDefault = req.IsDefault

	if err := h.policies.Update(c.UserContext(), policy); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaPolicyResponse(policy)})
}

// ListSlaPolicies GET /admin/sla-policies.
func (h *AdminHandler) ListSlaPolicies(c *fiber.Ctx) error {
	policies, err := h.policies.List(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.SlaPolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, slaPolicyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SlaStats GET /admin/sla-stats.
func (h *AdminHandler) SlaStats(c *fiber.Ctx) error {
	stats, err := h.sla.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// CreateEscalationRule POST /admin/escalation-rules.
func (h *AdminHandler) CreateEscalationRule(c *fiber.Ctx) error {
	var req dto.EscalationRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if err := validateRule(req.Conditions, req.Actions); err != nil {
		return err
	}

	rule := &domain.EscalationRule{
		Name:       req.Name,
		Priority:   req.Priority,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		IsActive:   true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if err := h.rules.Create(c.UserContext(), rule); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": escalationRuleResponse(rule)})
}

// UpdateEscalationRule PUT /admin/escalation-rules/:id.
func (h *AdminHandler) UpdateEscalationRule(c *fiber.Ctx) error {
	rule, err := h.rules.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	var req dto.EscalationRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validateRule(req.Conditions, req.Actions); err != nil {
		return err
	}

	if req.Name != "" {
		rule.Name = req.Name
	}
	rule.Priority = req.Priority
	rule.Conditions = req.Conditions
	rule.Actions = req.Actions
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if err := h.rules.Update(c.UserContext(), rule); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationRuleResponse(rule)})
}

// DeleteEscalationRule DELETE /admin/escalation-rules/:id.
func (h *AdminHandler) DeleteEscalationRule(c *fiber.Ctx) error {
	if err := h.rules.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListEscalationRules GET /admin/escalation-rules.
func (h *AdminHandler) ListEscalationRules(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.EscalationRuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, escalationRuleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// RunCheckSla POST /admin/sweeps/check-sla. Manual trigger for the
// scheduled job, returning the run summary.
func (h *AdminHandler) RunCheckSla(c *fiber.Ctx) error {
	result, err := h.sweeper.RunCheckSla(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// RunEscalations POST /admin/sweeps/escalations.
func (h *AdminHandler) RunEscalations(c *fiber.Ctx) error {
	summary, err := h.sweeper.RunEvaluateEscalations(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

func validatePriorityHours(hours domain.PriorityHours) error {
	for priority, target := range hours {
		if !priority.Valid() {
			return apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
		}
		if target <= 0 {
			return apperrors.NewValidationError("target hours must be positive", map[string]any{"priority": priority})
		}
	}
	return nil
}

func validateRule(conditions domain.RuleConditions, actions domain.RuleActions) error {
	for _, status := range conditions.Statuses {
		if !status.Valid() {
			return apperrors.NewValidationError("unknown status in conditions", map[string]any{"status": status})
		}
	}
	for _, priority := range conditions.Priorities {
		if !priority.Valid() {
			return apperrors.NewValidationError("unknown priority in conditions", map[string]any{"priority": priority})
		}
	}
	if actions.ChangeStatus != nil && !actions.ChangeStatus.Valid() {
		return apperrors.NewValidationError("unknown status in actions", map[string]any{"status": *actions.ChangeStatus})
	}
	if actions.ChangePriority != nil && !actions.ChangePriority.Valid() {
		return apperrors.NewValidationError("unknown priority in actions", map[string]any{"priority": *actions.ChangePriority})
	}
	if len(actions.Applied()) == 0 {
		return apperrors.NewValidationError("at least one action required", nil)
	}
	return nil
}

func slaPolicyResponse(policy *domain.SlaPolicy) dto.SlaPolicyResponse {
	return dto.SlaPolicyResponse{
		ID:                 policy.ID,
		Name:               policy.Name,
		Description:        policy.Description,
		FirstResponseHours: policy.FirstResponseHours,
		ResolutionHours:    policy.ResolutionHours,
		IsActive:           policy.IsActive,
		IsDefault:          policy.IsDefault,
		CreatedAt:          policy.CreatedAt,
		UpdatedAt:          policy.UpdatedAt,
	}
}

func escalationRuleResponse(rule *domain.EscalationRule) dto.EscalationRuleResponse {
	return dto.EscalationRuleResponse{
		ID:         rule.ID,
		Name:       rule.Name,
		Priority:   rule.Priority,
		Conditions: rule.Conditions,
		Actions:    rule.Actions,
		IsActive:   rule.IsActive,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
}
