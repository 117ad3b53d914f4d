// Strand is a demo HTTP/1 server showing adaptive response compression.
//
// Usage:
//
//	# Serve with the defaults, overridden by STRAND_* variables and .env
//	strand serve
//
//	# Serve with a configuration file
//	strand serve --config strand.yaml
//
//	# Check a configuration file
//	strand check --config strand.yaml
package main

func main() {
	Execute()
}
