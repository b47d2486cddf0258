// Package neo4jtwin implements twinsync.Service on Neo4j, for running imports
// against a self-hosted graph instead of a managed digital-twin service.
//
// Call BootstrapDatabase once to create the database and its constraints, then
// use NewService:
//
//	if err := neo4jtwin.BootstrapDatabase(ctx, driver, "twins"); err != nil {
//		...
//	}
//	svc := neo4jtwin.NewService(driver, "twins")
package neo4jtwin
