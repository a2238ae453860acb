// Package api hosts the HTTP server, middleware, and REST handlers for digest
// jobs. Notable routes:
//   - POST /api/jobs to submit a site and GET /api/jobs/{id} to poll progress.
//   - GET and PATCH /api/jobs/{id}/pages to review the scanned page set.
//   - POST /api/jobs/{id}/generate to resume a reviewed job.
//   - GET /api/jobs/{id}/download/{file_type} for the generated artifacts.
//   - GET /health and GET /metrics for probes and Prometheus scraping.
package api
