package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const storefrontHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Agent Bazaar</title>
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>⬡</text></svg>">
    <link rel="preconnect" href="https://fonts.googleapis.com">
    <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
    <link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600&family=JetBrains+Mono:wght@400;500&display=swap" rel="stylesheet">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --text-secondary: #a1a1aa; --text-tertiary: #52525b;
            --accent: #8b5cf6; --green: #22c55e; --red: #ef4444;
        }
        body {
            font-family: 'Inter', -apple-system, sans-serif;
            background: var(--bg); color: var(--text);
            min-height: 100vh; font-size: 14px;
            -webkit-font-smoothing: antialiased;
        }
        .mono { font-family: 'JetBrains Mono', monospace; }
        .container { max-width: 1000px; margin: 0 auto; padding: 0 24px; }
        header {
            border-bottom: 1px solid var(--border); padding: 16px 0;
            position: sticky; top: 0; background: var(--bg); z-index: 100;
        }
        .header-inner { display: flex; justify-content: space-between; align-items: center; }
        .logo { display: flex; align-items: center; gap: 10px; text-decoration: none; color: var(--text); }
        .logo-mark { width: 24px; height: 24px; background: var(--accent); border-radius: 6px; }
        .logo-text { font-weight: 600; font-size: 15px; }
        .live-badge {
            display: flex; align-items: center; gap: 8px;
            background: var(--bg-subtle); border: 1px solid var(--border);
            padding: 8px 14px; border-radius: 20px; font-size: 13px; color: var(--text-secondary);
        }
        .live-dot {
            width: 8px; height: 8px; background: var(--green); border-radius: 50%;
            animation: pulse 2s ease-in-out infinite;
        }
        @keyframes pulse { 0%,100% { opacity: 1; } 50% { opacity: 0.4; } }
        .hero { padding: 48px 0 24px; border-bottom: 1px solid var(--border); }
        .hero h1 { font-size: 26px; font-weight: 600; margin-bottom: 6px; }
        .hero p { color: var(--text-secondary); }
        .filters { display: flex; gap: 8px; padding: 20px 0; flex-wrap: wrap; }
        .chip {
            border: 1px solid var(--border); background: var(--bg-subtle);
            color: var(--text-secondary); padding: 6px 14px; border-radius: 16px;
            font-size: 13px; cursor: pointer;
        }
        .chip.active { border-color: var(--accent); color: var(--text); }
        .grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(290px, 1fr)); gap: 16px; padding-bottom: 64px; }
        .card {
            background: var(--bg-subtle); border: 1px solid var(--border);
            border-radius: 12px; padding: 20px; display: flex; flex-direction: column; gap: 10px;
        }
        .card-top { display: flex; justify-content: space-between; align-items: center; }
        .card-name { font-weight: 600; font-size: 15px; }
        .status { font-size: 12px; }
        .status.online { color: var(--green); }
        .status.offline { color: var(--text-tertiary); }
        .card-desc { color: var(--text-secondary); font-size: 13px; min-height: 36px; }
        .card-meta { display: flex; justify-content: space-between; color: var(--text-tertiary); font-size: 12px; }
        .buy {
            margin-top: 6px; background: var(--accent); color: #fff; border: none;
            border-radius: 8px; padding: 10px; font-size: 14px; font-weight: 500; cursor: pointer;
        }
        .buy:disabled { background: var(--border); color: var(--text-tertiary); cursor: not-allowed; }
        .overlay {
            position: fixed; inset: 0; background: rgba(0,0,0,0.7); display: none;
            align-items: center; justify-content: center; z-index: 200;
        }
        .overlay.open { display: flex; }
        .modal {
            background: var(--bg-subtle); border: 1px solid var(--border); border-radius: 12px;
            width: 380px; padding: 24px; display: flex; flex-direction: column; gap: 14px;
        }
        .modal h2 { font-size: 16px; }
        .row { display: flex; justify-content: space-between; font-size: 13px; color: var(--text-secondary); }
        .row .val { color: var(--text); }
        .row.total .val { font-weight: 600; }
        .terms { display: flex; gap: 8px; align-items: center; font-size: 13px; color: var(--text-secondary); }
        .state { font-size: 13px; color: var(--text-secondary); min-height: 18px; }
        .state.error { color: var(--red); }
        .state.success { color: var(--green); }
    </style>
</head>
<body>
    <header>
        <div class="container header-inner">
            <a class="logo" href="/"><div class="logo-mark"></div><div class="logo-text">Agent Bazaar</div></a>
            <div class="live-badge"><div class="live-dot"></div><span id="clients">live</span></div>
        </div>
    </header>
    <div class="container">
        <div class="hero">
            <h1>Hire an AI agent</h1>
            <p>Pay per execution in USDC on Polygon. Instant settlement, no subscriptions.</p>
        </div>
        <div class="filters" id="filters"></div>
        <div class="grid" id="grid"></div>
    </div>

    <div class="overlay" id="overlay">
        <div class="modal">
            <h2 id="m-name"></h2>
            <div class="row"><span>Price</span><span class="val mono" id="m-price"></span></div>
            <div class="row"><span>Platform fee (7%)</span><span class="val mono" id="m-fee"></span></div>
            <div class="row total"><span>Total</span><span class="val mono" id="m-total"></span></div>
            <label class="terms"><input type="checkbox" id="m-terms"> I accept the terms of service</label>
            <button class="buy" id="m-pay">Pay with USDC</button>
            <div class="state" id="m-state"></div>
        </div>
    </div>

    <script>
        const categories = ['all', 'creative', 'blockchain', 'storage', 'data', 'marketing'];
        let agents = [], current = null;

        function renderFilters(active) {
            document.getElementById('filters').innerHTML = categories.map(c =>
                '<div class="chip' + (c === active ? ' active' : '') + '" onclick="load(\'' + c + '\')">' + c + '</div>'
            ).join('');
        }

        async function load(category) {
            renderFilters(category);
            const q = category === 'all' ? '' : '?category=' + category;
            const res = await fetch('/v1/agents' + q);
            const body = await res.json();
            agents = body.agents || [];
            document.getElementById('grid').innerHTML = agents.map((a, i) =>
                '<div class="card">' +
                '<div class="card-top"><span class="card-name">' + a.name + '</span>' +
                '<span class="status ' + a.status + '">● ' + a.status + '</span></div>' +
                '<div class="card-desc">' + (a.description || '') + '</div>' +
                '<div class="card-meta"><span>' + a.category + '</span>' +
                '<span>★ ' + a.rating.toFixed(1) + ' · ' + a.total_executions + ' runs</span></div>' +
                '<button class="buy" onclick="checkout(' + i + ')"' +
                (a.status !== 'online' ? ' disabled' : '') + '>' +
                a.pricing.per_task + ' USDC</button></div>'
            ).join('');
        }

        async function checkout(i) {
            current = agents[i];
            const res = await fetch('/v1/agents/' + current.slug + '/quote');
            const quote = await res.json();
            document.getElementById('m-name').textContent = current.name;
            document.getElementById('m-price').textContent = quote.price + ' USDC';
            document.getElementById('m-fee').textContent = quote.platform_fee + ' USDC';
            document.getElementById('m-total').textContent = quote.total + ' USDC';
            document.getElementById('m-terms').checked = false;
            setState('', '');
            document.getElementById('overlay').classList.add('open');
            current.total = quote.total;
        }

        function setState(text, cls) {
            const el = document.getElementById('m-state');
            el.textContent = text;
            el.className = 'state ' + cls;
        }

        document.getElementById('overlay').addEventListener('click', e => {
            if (e.target.id === 'overlay') e.target.classList.remove('open');
        });

        document.getElementById('m-pay').addEventListener('click', async () => {
            if (!document.getElementById('m-terms').checked) {
                setState('Please accept the terms of service first.', 'error');
                return;
            }
            setState('Processing payment…', '');
            try {
                const res = await fetch('/v1/transactions', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({
                        agent_id: current.id,
                        user_id: 'demo_buyer',
                        amount: current.total,
                        blockchain_tx_hash: '0x' + crypto.getRandomValues(new Uint8Array(32))
                            .reduce((s, b) => s + b.toString(16).padStart(2, '0'), ''),
                    }),
                });
                const body = await res.json();
                if (!res.ok) {
                    setState(body.message || 'Payment failed. Please try again.', 'error');
                    return;
                }
                const txID = body.transaction.id;
                setState('Payment confirmed. Redirecting to your receipt…', 'success');
                setTimeout(() => { window.location = '/transactions/' + txID; }, 2000);
            } catch (err) {
                setState('Payment failed. Please try again.', 'error');
            }
        });

        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
        ws.onopen = () => ws.send(JSON.stringify({ all_events: true }));
        ws.onmessage = () => load(document.querySelector('.chip.active').textContent);

        load('all');
    </script>
</body>
</html>`

const transactionPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Receipt · Agent Bazaar</title>
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>⬡</text></svg>">
    <link rel="preconnect" href="https://fonts.googleapis.com">
    <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
    <link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600&family=JetBrains+Mono:wght@400;500&display=swap" rel="stylesheet">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --text-secondary: #a1a1aa; --text-tertiary: #52525b;
            --accent: #8b5cf6; --green: #22c55e; --red: #ef4444;
        }
        body {
            font-family: 'Inter', -apple-system, sans-serif;
            background: var(--bg); color: var(--text);
            min-height: 100vh; font-size: 14px;
            -webkit-font-smoothing: antialiased;
        }
        .mono { font-family: 'JetBrains Mono', monospace; }
        .container { max-width: 560px; margin: 0 auto; padding: 48px 24px; }
        a { color: var(--accent); text-decoration: none; }
        .card {
            background: var(--bg-subtle); border: 1px solid var(--border);
            border-radius: 12px; padding: 28px; display: flex; flex-direction: column; gap: 14px;
        }
        h1 { font-size: 18px; }
        .badge {
            align-self: flex-start; font-size: 12px; border-radius: 12px; padding: 4px 12px;
            border: 1px solid var(--border);
        }
        .badge.completed { color: var(--green); }
        .badge.failed, .badge.refunded { color: var(--red); }
        .badge.pending { color: var(--text-secondary); }
        .row { display: flex; justify-content: space-between; gap: 16px; font-size: 13px; color: var(--text-secondary); }
        .row .val { color: var(--text); text-align: right; word-break: break-all; }
        .divider { border-top: 1px solid var(--border); }
        pre {
            background: var(--bg); border: 1px solid var(--border); border-radius: 8px;
            padding: 14px; font-size: 12px; overflow-x: auto; color: var(--text-secondary);
        }
        .error-box { color: var(--red); font-size: 13px; }
        .back { margin-top: 20px; display: inline-block; font-size: 13px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="card" id="card">Loading…</div>
        <a class="back" href="/">← Back to the bazaar</a>
    </div>

    <script>
        const id = location.pathname.split('/').pop();

        function row(label, value, mono) {
            if (value === undefined || value === null || value === '') return '';
            return '<div class="row"><span>' + label + '</span><span class="val' +
                (mono ? ' mono' : '') + '">' + value + '</span></div>';
        }

        async function load() {
            const res = await fetch('/v1/transactions/' + id);
            const card = document.getElementById('card');
            if (!res.ok) {
                card.innerHTML = '<h1>Transaction not found</h1>' +
                    '<div class="error-box">No transaction exists with this ID.</div>';
                return;
            }
            const tx = (await res.json()).transaction;
            const agent = tx.agent || {};
            const receipt = tx.receipt || {};
            card.innerHTML =
                '<h1>Execution receipt</h1>' +
                '<span class="badge ' + tx.status + '">' + tx.status + '</span>' +
                row('Agent', agent.name || tx.agent_id) +
                row('Amount', tx.amount + ' ' + tx.currency, true) +
                row('Transaction', tx.id, true) +
                '<div class="divider"></div>' +
                row('Protocol', receipt.protocol) +
                row('Settlement', receipt.settlement) +
                row('Network', receipt.network) +
                row('Tx hash', receipt.blockchain_tx_hash, true) +
                row('Timestamp', receipt.timestamp, true) +
                (tx.error_message ? '<div class="error-box">' + tx.error_message + '</div>' : '') +
                (tx.output_data ? '<pre>' + JSON.stringify(tx.output_data, null, 2) + '</pre>' : '');
        }

        load();
    </script>
</body>
</html>`

func storefrontHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(storefrontHTML))
}

func transactionPageHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(transactionPageHTML))
}
