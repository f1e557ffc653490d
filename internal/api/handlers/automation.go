package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/automation"
	"github.com/frostdev-ops/pma-homesim/pkg/utils"
)

const maxRuleDocument = 1 << 20

// GetAutomationRules returns all automation rules
func (h *Handlers) GetAutomationRules(c *gin.Context) {
	rules := h.app.Rules.List()
	utils.SendSuccessWithMeta(c, rules, gin.H{
		"count":   len(rules),
		"enabled": h.app.Engine.Enabled(),
	})
}

// GetAutomationRule returns a specific automation rule
func (h *Handlers) GetAutomationRule(c *gin.Context) {
	rule, err := h.app.Rules.Get(c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, rule)
}

// CreateAutomationRule creates a new automation rule
func (h *Handlers) CreateAutomationRule(c *gin.Context) {
	var rule automation.Rule
	if !bind(c, &rule) {
		return
	}

	var created automation.Rule
	err := h.do(c, func() error {
		var err error
		created, err = h.app.Rules.Add(rule)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"rule_id": created.ID,
		"trigger": created.Trigger.Type,
	}).Info("Automation rule created")
	utils.SendCreated(c, created)
}

// UpdateAutomationRule updates an existing automation rule
func (h *Handlers) UpdateAutomationRule(c *gin.Context) {
	var patch automation.RulePatch
	if !bind(c, &patch) {
		return
	}

	var updated automation.Rule
	err := h.do(c, func() error {
		var err error
		updated, err = h.app.Rules.Update(c.Param("id"), patch)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, updated)
}

// DeleteAutomationRule deletes an automation rule
func (h *Handlers) DeleteAutomationRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.do(c, func() error { return h.app.Rules.Delete(id) }); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}

// EnableAutomationRule enables an automation rule
func (h *Handlers) EnableAutomationRule(c *gin.Context) {
	h.setActive(c, true)
}

// DisableAutomationRule disables an automation rule
func (h *Handlers) DisableAutomationRule(c *gin.Context) {
	h.setActive(c, false)
}

func (h *Handlers) setActive(c *gin.Context, active bool) {
	var rule automation.Rule
	err := h.do(c, func() error {
		var err error
		rule, err = h.app.Rules.SetActive(c.Param("id"), active)
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, rule)
}

// GetAutomationRuleStats reports how often a rule ran.
func (h *Handlers) GetAutomationRuleStats(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.app.Rules.Get(id); err != nil {
		utils.SendAppError(c, err)
		return
	}
	stats, _ := h.app.Engine.Stats(id)
	utils.SendSuccess(c, stats)
}

// ImportAutomationRules adds every rule in a YAML or JSON document.
func (h *Handlers) ImportAutomationRules(c *gin.Context) {
	data, ok := readDocument(c)
	if !ok {
		return
	}

	var imported []automation.Rule
	err := h.do(c, func() error {
		var err error
		imported, err = h.app.Rules.Import(data, documentFormat(c))
		return err
	})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendCreated(c, gin.H{"imported": len(imported), "rules": imported})
}

// ExportAutomationRules writes every rule as a YAML document.
func (h *Handlers) ExportAutomationRules(c *gin.Context) {
	data, err := h.app.Rules.Export()
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="automation_rules.yaml"`)
	c.Data(http.StatusOK, "application/x-yaml", data)
}

// ValidateAutomationRules checks a rule document without adding it.
func (h *Handlers) ValidateAutomationRules(c *gin.Context) {
	data, ok := readDocument(c)
	if !ok {
		return
	}
	utils.SendSuccess(c, automation.NewRuleParser().ValidateRuleSyntax(data, documentFormat(c)))
}

func readDocument(c *gin.Context) ([]byte, bool) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRuleDocument))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	if len(data) == 0 {
		utils.SendError(c, http.StatusBadRequest, "Request body is empty")
		return nil, false
	}
	return data, true
}

// documentFormat takes ?format= first, then the content type, and falls
// back to YAML.
func documentFormat(c *gin.Context) string {
	if f := strings.ToLower(c.Query("format")); f != "" {
		if f == "yml" {
			return "yaml"
		}
		return f
	}
	if strings.Contains(c.ContentType(), "json") {
		return "json"
	}
	return "yaml"
}
