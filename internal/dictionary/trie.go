package dictionary

// Trie is a rune trie over a vocabulary. It is built once and read concurrently.
type Trie struct {
	root   *trieNode
	size   int
	maxLen int
}

type trieNode struct {
	children map[rune]*trieNode
	word     bool
}

func newTrie() *Trie {
	return &Trie{root: &trieNode{}}
}

func (t *Trie) insert(word string) {
	n := t.root
	length := 0
	for _, r := range word {
		length++
		child, ok := n.children[r]
		if !ok {
			if n.children == nil {
				n.children = make(map[rune]*trieNode)
			}
			child = &trieNode{}
			n.children[r] = child
		}
		n = child
	}
	if length == 0 || n.word {
		return
	}
	n.word = true
	t.size++
	if length > t.maxLen {
		t.maxLen = length
	}
}

// Contains reports whether word is in the vocabulary.
func (t *Trie) Contains(word string) bool {
	if t == nil || word == "" {
		return false
	}
	n := t.root
	for _, r := range word {
		n = n.children[r]
		if n == nil {
			return false
		}
	}
	return n.word
}

// Matches returns every end offset e (ascending) such that runes[start:e] is a word.
func (t *Trie) Matches(runes []rune, start int) []int {
	if t == nil {
		return nil
	}
	var ends []int
	n := t.root
	for i := start; i < len(runes); i++ {
		n = n.children[runes[i]]
		if n == nil {
			break
		}
		if n.word {
			ends = append(ends, i+1)
		}
	}
	return ends
}

// Len is the number of words in the trie.
func (t *Trie) Len() int {
	if t == nil {
		return 0
	}
	return t.size
}

// MaxLen is the length in runes of the longest word.
func (t *Trie) MaxLen() int {
	if t == nil {
		return 0
	}
	return t.maxLen
}
