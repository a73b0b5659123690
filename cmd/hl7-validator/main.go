// Command hl7-validator validates HL7 v2 electronic lab reports.
//
// Usage:
//
//	# Validate files (globs are expanded) or stdin
//	hl7-validator validate lab.hl7 'inbox/*.hl7'
//	cat lab.hl7 | hl7-validator validate -
//
//	# Validate a batch file message by message, as JSON
//	hl7-validator validate --batch --format json batch.hl7
//
//	# Serve the HTTP API
//	hl7-validator serve --config hl7-validator.yaml
//
//	# Validate files dropped into a directory
//	hl7-validator watch --dir inbox
//
//	# Inspect recorded runs
//	hl7-validator history list --invalid
package main

func main() {
	Execute()
}
