// Command llmstxtd serves the llms.txt job API and runs the pipeline workers
// that discover, categorize, extract, summarize and generate each job.
package main
