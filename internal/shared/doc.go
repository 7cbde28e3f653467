// Package shared holds code used by more than one RideX package that belongs
// to no single layer.
//
// The testutil subpackage provides the test doubles the lifecycle tests share:
//
//   - BufferedSlogHandler and NewTestLogger capture slog records so tests can
//     assert on messages and attributes.
//   - FakeMongoClient stands in for the MongoDB driver client with scripted
//     ping and disconnect behaviour.
//
// Nothing here may import a domain package.
package shared
