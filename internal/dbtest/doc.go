/*
Package dbtest spins up database containers for tests that need a real graph
store, on top of testcontainers-go.

Tests that only need some Neo4j instance should use SetupNeo4j; a test that
needs its own database on a shared instance can call Database. Tests needing a
specific customisation of Neo4j should use the testcontainers-go modules
directly.

Container-based tests honour the -short flag. To inspect the database after a
failed test, keep its container running with:

	go test -dbtest.inspect
*/
package dbtest
