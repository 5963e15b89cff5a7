package ai

// ExtractSystemPrompt frames every extraction request.
const ExtractSystemPrompt = `You are a careful literary analyst. You extract only what the passage states, never what you know about the book from elsewhere. You answer with JSON only.`

const ExtractGraphPrompt = `
# Task Context
You are a knowledge graph extraction assistant for narrative fiction. You read a passage of a novel and record the entities that appear in it and the relationships between them.

# Allowed Vocabulary
%s

# Detailed Task Description & Rules
- Extract every entity that takes part in the passage: characters, places, objects, organisations, events and similar narrative elements.
- Use the entity's canonical name as its "id" (e.g. "Elizabeth Bennet", not "she" or "Miss Bennet" when the full name is known).
- Use the same id for the same entity every time it occurs.
- Put the entity's name into the "name" property. Add short descriptive properties only when the passage states them.
- Each relationship connects two extracted entities by their ids. Direction matters: "source" acts on or relates to "target".
- Do not invent facts that are not in the passage.
- Do not extract pronouns or generic nouns as entities.

# Passage
%s

# Output Formatting
Return a JSON object with "nodes" and "relationships". Each node has "id", "type" and "properties". Each relationship has "source", "target", "type" and "properties". Properties are given as a list of key/value pairs.
`

// ExtractVocabularyConstrained is inserted into ExtractGraphPrompt when the
// schema restricts types.
const ExtractVocabularyConstrained = `Node types (use only these): %s
Relationship types (use only these): %s`

// ExtractVocabularyFree is inserted into ExtractGraphPrompt when the schema is
// unconstrained.
const ExtractVocabularyFree = `Any node type and relationship type that describes the passage well. Prefer short, singular type names.`

const GenerateSchemaPrompt = `
# Task Context
You design the vocabulary of a knowledge graph for a work of narrative fiction. The vocabulary extends a base schema so that it fits the given text.

# Base Schema
Node types: %s
Relationship types: %s

# Text
%s

# Detailed Task Description & Rules
- Keep every base node type and base relationship type.
- Add types that the text clearly needs. Use short, simple, singular words.
- Return between 5 and 8 node types and between 5 and 8 relationship types in total.
- Give the schema a short name and a one-sentence description.

# Output Formatting
Return a JSON object with "name", "description", "elements" (node types) and "relationships" (relationship types).
`

const GroupNeighboursPrompt = `
# Task Context
A node of a narrative knowledge graph (the hub) is directly connected to too many other nodes. Its neighbours will be moved behind a few intermediate concept nodes.

# Hub
ID: %s
Type: %s
Properties: %s

# Neighbours
%s

# Detailed Task Description & Rules
- Split the neighbours into semantically coherent groups, each built around one clear theme.
- A group holds at most %d neighbours. Every neighbour belongs to exactly one group.
- "group_name" is a short word or phrase that sums up the group, e.g. "Family", "Childhood", "Battles".
- "link_type" describes the relationship from the hub to the group, e.g. "involves", "owns", "experienced".
- "member_type" describes the relationship from the group to its members, e.g. "includes", "caused".
- Only use neighbour ids from the list above.

# Output Formatting
Return a JSON object with "groups". Each group has "group_name", "node_ids", "link_type" and "member_type".
`

const ReconnectNodePrompt = `
# Task Context
A node of a narrative knowledge graph has lost its connection to the rest of the graph and needs meaningful new relationships.

# Disconnected Node
ID: %s
Type: %s
Properties: %s

# Candidates (most connected first)
%s

# Detailed Task Description & Rules
- Pick one to three candidates the node most plausibly relates to.
- Give each pair a short relationship type.
- Only use candidate ids from the list above. Return an empty list if nothing fits.

# Output Formatting
Return a JSON object with "suggestions". Each suggestion has "target_node_id" and "relationship_type".
`
