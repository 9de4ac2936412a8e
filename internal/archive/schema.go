package archive

// SchemaSQL defines one conversation record per session and its ordered messages.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS message_count ON conversation TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON conversation TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS conversation_updated ON conversation FIELDS updated;

    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS position ON message TYPE int;
    DEFINE FIELD IF NOT EXISTS msg_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS sources ON message TYPE array<object> FLEXIBLE DEFAULT [];
    DEFINE FIELD IF NOT EXISTS image_url ON message TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation, position UNIQUE;
`
