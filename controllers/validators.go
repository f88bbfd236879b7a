package controllers

import (
	"sync"

	"civicreport-be/models"
	"civicreport-be/stats"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the issue enum tags to gin's validator. Safe to call
// more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterValidation("issue_category", func(fl validator.FieldLevel) bool {
			return models.IssueCategory(fl.Field().String()).Valid()
		})
		v.RegisterValidation("issue_status", func(fl validator.FieldLevel) bool {
			return models.IssueStatus(fl.Field().String()).Valid()
		})
		v.RegisterValidation("issue_priority", func(fl validator.FieldLevel) bool {
			return models.IssuePriority(fl.Field().String()).Valid()
		})
		v.RegisterValidation("issue_filter", func(fl validator.FieldLevel) bool {
			return stats.ValidFilter(fl.Field().String())
		})
	})
}
