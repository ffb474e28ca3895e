package cli

// Backends linked into every command line tool.
import (
	_ "xdao.co/proofs/storage/gateway"
	_ "xdao.co/proofs/storage/gitobj"
	_ "xdao.co/proofs/storage/grpccas"
	_ "xdao.co/proofs/storage/ipfs"
	_ "xdao.co/proofs/storage/localfs"
	_ "xdao.co/proofs/storage/memcas"
	_ "xdao.co/proofs/storage/rediscas"
	_ "xdao.co/proofs/storage/s3cas"
)
