// Package digest defines the job and page model shared by the pipeline, its
// collaborators and the persistence layers that back them.
package digest
