/*
Package dbtest spins up database containers for tests. It wraps the
testcontainers-go library for the common case where the details of the
database are not important to the test.

Developing locally with Docker, you may want to manually inspect the database
after a test failure. To do this, set the Inspect flag to true:

	go test ./neo4jtwin -dbtest.inspect

To test against another Neo4j server version, override the image:

	go test ./neo4jtwin -dbtest.neo4j-image=docker.io/neo4j:5.26-enterprise

This package is intended to be used in tests only.
*/
package dbtest
