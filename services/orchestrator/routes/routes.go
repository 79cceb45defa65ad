// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ridgelineai/ridgeline/services/orchestrator/handlers"
	"github.com/ridgelineai/ridgeline/services/orchestrator/middleware"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
	"github.com/ridgelineai/ridgeline/services/orchestrator/store"
	"github.com/ridgelineai/ridgeline/services/tools"
)

// SetupRoutes registers the job API. renderer may be nil; apiKey may be
// empty to disable authentication.
func SetupRoutes(router *gin.Engine, jobs *store.JobStore, manager *pipeline.Manager,
	renderer tools.Renderer, apiKey string) {

	router.GET("/health", handlers.HealthCheck(jobs))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuth(apiKey))
	{
		jobsGroup := v1.Group("/jobs")
		{
			jobsGroup.POST("", handlers.CreateJob(jobs, manager))
			jobsGroup.GET("", handlers.ListJobs(jobs))
			jobsGroup.GET("/:jobId", handlers.GetJob(jobs))
			jobsGroup.GET("/:jobId/report", handlers.GetReport(jobs, renderer))
			jobsGroup.POST("/:jobId/approve", handlers.DecideJob(jobs, true))
			jobsGroup.POST("/:jobId/reject", handlers.DecideJob(jobs, false))
			jobsGroup.DELETE("/:jobId", handlers.CancelJob(jobs, manager))
		}
	}
}
