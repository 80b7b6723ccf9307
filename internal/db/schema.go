package db

// SchemaSQL contains the database schema initialization SQL.
//
// Node identity is (graph_id, label, name); the unique index backs the
// idempotent merge path. uuid and created_at are assigned by the database
// on first write and READONLY afterwards, so a merge never needs a
// read-before-write to preserve them. updated_at is refreshed on every
// write via VALUE.
const SchemaSQL = `
    -- ==========================================================================
    -- GRAPH NODE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS graph_node SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS graph_id ON graph_node TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON graph_node TYPE string;
    DEFINE FIELD IF NOT EXISTS label ON graph_node TYPE string DEFAULT "Entity";
    DEFINE FIELD IF NOT EXISTS summary ON graph_node TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS props ON graph_node TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS uuid ON graph_node TYPE string DEFAULT <string>rand::uuid::v4() READONLY;
    DEFINE FIELD IF NOT EXISTS created_at ON graph_node TYPE datetime DEFAULT time::now() READONLY;
    DEFINE FIELD IF NOT EXISTS updated_at ON graph_node TYPE datetime DEFAULT time::now() VALUE time::now();

    DEFINE INDEX IF NOT EXISTS graph_node_identity ON graph_node FIELDS graph_id, label, name UNIQUE;
    DEFINE INDEX IF NOT EXISTS graph_node_graph ON graph_node FIELDS graph_id;
    DEFINE INDEX IF NOT EXISTS graph_node_name ON graph_node FIELDS graph_id, name;

    -- ==========================================================================
    -- GRAPH EDGE RELATION
    -- ==========================================================================
    -- Single relation table with rel_type field instead of dynamic table names.
    -- unique_key prevents duplicate (in, rel_type, out) edges under concurrency.
    DEFINE TABLE IF NOT EXISTS graph_edge TYPE RELATION IN graph_node OUT graph_node SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS graph_id ON graph_edge TYPE string;
    DEFINE FIELD IF NOT EXISTS rel_type ON graph_edge TYPE string;
    DEFINE FIELD IF NOT EXISTS props ON graph_edge TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS uuid ON graph_edge TYPE string DEFAULT <string>rand::uuid::v4() READONLY;
    DEFINE FIELD IF NOT EXISTS created_at ON graph_edge TYPE datetime DEFAULT time::now() READONLY;
    DEFINE FIELD IF NOT EXISTS updated_at ON graph_edge TYPE datetime DEFAULT time::now() VALUE time::now();
    DEFINE FIELD IF NOT EXISTS unique_key ON graph_edge VALUE string::concat(<string>in, "|", rel_type, "|", <string>out);

    DEFINE INDEX IF NOT EXISTS graph_edge_identity ON graph_edge FIELDS unique_key UNIQUE;
    DEFINE INDEX IF NOT EXISTS graph_edge_graph ON graph_edge FIELDS graph_id;
`
