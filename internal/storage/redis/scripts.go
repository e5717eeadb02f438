package redis

const (
	// putKeyScript atomically stores a document and records it in the scope index
	putKeyScript = `
local value_key = KEYS[1]   -- snsdetox:{scope}:doc:{name}
local index_key = KEYS[2]   -- snsdetox:{scope}:index

local name = ARGV[1]
local value = ARGV[2]

redis.call('SET', value_key, value)
redis.call('SADD', index_key, name)

return 'OK'
`

	// deleteKeyScript atomically removes a document and its index entry
	deleteKeyScript = `
local value_key = KEYS[1]   -- snsdetox:{scope}:doc:{name}
local index_key = KEYS[2]   -- snsdetox:{scope}:index

local name = ARGV[1]

redis.call('DEL', value_key)
redis.call('SREM', index_key, name)

return 'OK'
`

	// clearScopeScript removes every indexed document in a scope, then the index
	clearScopeScript = `
local index_key = KEYS[1]   -- snsdetox:{scope}:index

local doc_prefix = ARGV[1]  -- snsdetox:{scope}:doc:

local names = redis.call('SMEMBERS', index_key)
for _, name in ipairs(names) do
  redis.call('DEL', doc_prefix .. name)
end
redis.call('DEL', index_key)

return #names
`
)
