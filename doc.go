// Package twinsync imports exported entity graphs into a digital-twin service;
// a digital-twin service (e.g. AWS IoT TwinMaker) keeps entities in a
// parent/child tree under a workspace, and each entity instantiates component
// types whose schemas live in the same workspace.
//
// Creating anything in such a service is asynchronous: a create call is
// accepted in a CREATING state, and the resource cannot be referenced (as a
// parent, or as a component type) until it turns ACTIVE. This package hides
// that lifecycle behind idempotent "ensure" operations:
//
//   - Waiter polls a resource until it becomes active, with exponential
//     backoff and a deadline.
//   - Workspaces provisions the workspace and its storage bucket.
//   - ComponentTypes provisions the component types that entities instantiate.
//   - Resolver creates entities in root-to-leaf order, synthesizing
//     placeholders for parents that the exported document references without
//     defining.
//   - Importer drives a complete ImportJob, and ImportJobs serves jobs received
//     over a pubsub subscription.
//
// The remote service itself is abstracted by the Service interface. Package
// twinmaker implements it over AWS IoT TwinMaker, package neo4jtwin over a
// Neo4j database, and package memtwin in memory for tests and dry runs.
//
// Imports are additive: existing entities are never updated, and entities
// created before a failed import remain in place to be skipped on retry.
package twinsync
