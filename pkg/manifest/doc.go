// Package manifest assembles the per-run manifest.json.
//
//	{
//	  "generated_at": "2024-05-01T12:00:00Z",
//	  "accounts": {
//	    "istanbul": {
//	      "id": "TR-34",
//	      "name": "İstanbul",
//	      "handle": "istanbulanlik",
//	      "stories": [
//	        {"file": "istanbulanlik/ABC.jpg", "thumb": null, "type": "image",
//	         "timestamp": "2024-05-01T09:00:00Z", "caption": "...",
//	         "link": "https://www.instagram.com/p/ABC/", "likes": 120}
//	      ]
//	    }
//	  }
//	}
//
// Accounts appear in configuration order. The whole document is rewritten
// on every run.
package manifest
